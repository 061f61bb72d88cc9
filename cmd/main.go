package main

import (
	"os"

	"github.com/ashareinsight/ashareinsight/cmd/ashareinsight"
	"github.com/ashareinsight/ashareinsight/pkg/apperr"
)

func main() {
	if err := ashareinsight.Execute(); err != nil {
		os.Exit(apperr.ExitCode(err))
	}
}
