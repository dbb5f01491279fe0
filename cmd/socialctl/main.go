package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sandeepkv93/social-publishing-core/internal/tools/socialctl"
)

func main() {
	if err := socialctl.NewRootCommand().Execute(); err != nil {
		var exit *socialctl.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
