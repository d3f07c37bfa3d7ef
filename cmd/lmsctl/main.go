// Command lmsctl is a command line client for the Sci-Bono LMS API.
//
// Settings come from LMS_* environment variables and can be overridden with
// flags. The session is kept between invocations in ~/.lms/session.json, or
// in a sqlite database when --session-db is given.
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd, a := newRootCmd()
	err := cmd.Execute()
	if cerr := a.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
