package common

import (
	"encoding/json"
	"fmt"
	"os"
)

type ciResult struct {
	OK      bool     `json:"ok"`
	Title   string   `json:"title"`
	Details []string `json:"details,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// PrintCIResult writes a single JSON line to stdout for pipelines.
func PrintCIResult(ok bool, title string, details []string, err error) {
	res := ciResult{OK: ok, Title: title, Details: details}
	if err != nil {
		res.Error = err.Error()
	}
	b, marshalErr := json.Marshal(res)
	if marshalErr != nil {
		fmt.Fprintf(os.Stdout, "{\"ok\":false,\"title\":%q,\"error\":%q}\n", title, marshalErr.Error())
		return
	}
	fmt.Fprintln(os.Stdout, string(b))
}
