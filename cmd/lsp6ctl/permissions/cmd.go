// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package permissions

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/ava-labs/keymanager/permissions"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "permissions",
		Short: "Encodes and decodes controller permissions",
	}
	c.AddCommand(
		&cobra.Command{
			Use:   "encode <name>...",
			Short: "Prints the bytes32 value granting the named permissions",
			Args:  cobra.MinimumNArgs(1),
			RunE:  encodeFunc,
		},
		&cobra.Command{
			Use:   "decode <value>",
			Short: "Prints the permissions held by a stored value",
			Args:  cobra.ExactArgs(1),
			RunE:  decodeFunc,
		},
	)
	return c
}

func encodeFunc(c *cobra.Command, args []string) error {
	perms, err := permissions.ParseNames(args...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.OutOrStdout(), perms)
	return err
}

func decodeFunc(c *cobra.Command, args []string) error {
	raw, err := hexutil.Decode(args[0])
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[0], err)
	}
	perms := permissions.FromBytes(raw)
	_, err = fmt.Fprintf(c.OutOrStdout(), "%s\n%s\n", perms, perms.Describe())
	return err
}
