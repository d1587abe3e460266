package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/geodesymiami/minsar-sub000/internal/cli"
	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var planErr *model.PlanningError
		if errors.As(err, &planErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
