// Command research-scraper runs the RFP aggregation pipeline.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/scottlangford2/research-scraper/cmd"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
