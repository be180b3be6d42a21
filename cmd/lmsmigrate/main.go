// Command lmsmigrate moves courses, lessons, quizzes, assignments and
// certificates from the source LMS database into the target LMS.
package main

import (
	"fmt"
	"os"

	"lms-migrate/internal/errors"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		for _, h := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "hint:", h)
		}
		os.Exit(1)
	}
}
