// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ava-labs/keymanager/cmd/lsp6ctl/allowedcalls"
	"github.com/ava-labs/keymanager/cmd/lsp6ctl/controller"
	"github.com/ava-labs/keymanager/cmd/lsp6ctl/permissions"
	"github.com/ava-labs/keymanager/cmd/lsp6ctl/relay"
	"github.com/ava-labs/keymanager/cmd/lsp6ctl/serve"
)

func init() {
	cobra.EnablePrefixMatching = true
}

func main() {
	cmd := &cobra.Command{
		Use:   "lsp6ctl",
		Short: "Tools for LSP6 key managers",
	}
	cmd.AddCommand(
		permissions.Command(),
		allowedcalls.Command(),
		relay.Command(),
		controller.Command(),
		serve.Command(),
	)
	ctx := context.Background()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "command failed %v\n", err)
		os.Exit(1)
	}
}
