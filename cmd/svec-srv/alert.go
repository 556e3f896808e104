// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-lpc/svec/carrier"
	mail "gopkg.in/gomail.v2"
)

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = splitTargets(os.Getenv("MAIL_TGTS"))
)

func alertMail(st carrier.Status) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := newAlert(alertMailUsr, alertMailTgts, st)

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func newAlert(from string, tgts []string, st carrier.Status) *mail.Message {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("Bcc", tgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[svec-srv] card lun %d: %v", st.LUN, st.Outcome))
	msg.SetBody("text/plain", fmt.Sprintf(
		"host: %s\nboard: %s\nfirmware: %q (%d bytes)\noutcome: %v\nerror: %v\n",
		host, st.Description, st.Firmware, st.Size, st.Outcome, st.Err,
	))
	return msg
}

func splitTargets(v string) []string {
	var tgts []string
	for _, tgt := range strings.Split(v, ",") {
		tgt = strings.TrimSpace(tgt)
		if tgt == "" {
			continue
		}
		tgts = append(tgts, tgt)
	}
	return tgts
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
