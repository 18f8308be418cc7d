// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sigma-ctl is an interactive shell driving ASIX SIGMA logic analyzers.
//
// Example:
//
//	$> sigma-ctl
//	sigma> scan
//	a6010001 SIGMA
//	sigma> open a6010001
//	sigma> rate 50MHz
//	sigma> trigger 1=r
//	sigma> limit 100000 0
//	sigma> acq out.sigma
//	sigma> quit
package main // import "github.com/go-lpc/sigma/cmd/sigma-ctl"

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

func main() {
	log.SetPrefix("sigma-ctl: ")
	log.SetFlags(0)

	sh := newShell(os.Stdout)
	defer sh.close()

	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(sh.complete)

	hist := filepath.Join(os.TempDir(), ".sigma-ctl.history")
	if f, err := os.Open(hist); err == nil {
		_, _ = term.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(hist)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	for {
		line, err := term.Prompt("sigma> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return
			}
			log.Printf("could not read command: %+v", err)
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		err = sh.exec(line)
		switch {
		case errors.Is(err, errQuit):
			return
		case err != nil:
			log.Printf("%+v", err)
		}
	}
}
