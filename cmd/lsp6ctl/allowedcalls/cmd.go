// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package allowedcalls

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/ava-labs/keymanager/allowedcalls"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "allowedcalls",
		Short: "Encodes and decodes AddressPermissions:AllowedCalls values",
	}
	c.AddCommand(
		&cobra.Command{
			Use:   `encode "<callTypes> <target> <interfaceId> <selector>"...`,
			Short: "Prints the compact bytes array of the given entries",
			Args:  cobra.MinimumNArgs(1),
			RunE:  encodeFunc,
		},
		&cobra.Command{
			Use:   "decode <value>",
			Short: "Prints every entry of a stored value",
			Args:  cobra.ExactArgs(1),
			RunE:  decodeFunc,
		},
	)
	return c
}

func encodeFunc(c *cobra.Command, args []string) error {
	list := make(allowedcalls.List, len(args))
	for i, arg := range args {
		entry, err := allowedcalls.ParseEntryString(arg)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		list[i] = entry
	}
	_, err := fmt.Fprintln(c.OutOrStdout(), hexutil.Encode(list.Encode()))
	return err
}

func decodeFunc(c *cobra.Command, args []string) error {
	raw, err := hexutil.Decode(args[0])
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[0], err)
	}
	list, err := allowedcalls.Decode(raw)
	if err != nil {
		return err
	}

	out := c.OutOrStdout()
	if list.Disabled() {
		_, err := fmt.Fprintln(out, "disabled")
		return err
	}
	for _, entry := range list {
		if _, err := fmt.Fprintln(out, entry); err != nil {
			return err
		}
	}
	return nil
}
