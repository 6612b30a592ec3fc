// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ava-labs/keymanager/api/lsp6"
	"github.com/ava-labs/keymanager/utils/rpc"
)

const (
	URIKey        = "uri"
	KeyManagerKey = "key-manager"

	defaultURI = "http://127.0.0.1:9650"
)

var errInvalidAddress = errors.New("invalid address")

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "controller [address]",
		Short: "Displays a controller of a served key manager, or lists every controller",
		Args:  cobra.MaximumNArgs(1),
		RunE:  controllerFunc,
	}
	c.Flags().String(URIKey, defaultURI, "API URI of the key manager server")
	c.Flags().String(KeyManagerKey, "", "If set, replies from a server fronting another key manager are rejected")
	return c
}

func controllerFunc(c *cobra.Command, args []string) error {
	uri, err := c.Flags().GetString(URIKey)
	if err != nil {
		return err
	}

	keyManager, err := c.Flags().GetString(KeyManagerKey)
	if err != nil {
		return err
	}
	var options []rpc.Option
	if keyManager != "" {
		if !common.IsHexAddress(keyManager) {
			return fmt.Errorf("%w: %q", errInvalidAddress, keyManager)
		}
		options = append(options, lsp6.WithKeyManager(common.HexToAddress(keyManager)))
	}

	ctx := c.Context()
	client := lsp6.NewClient(uri)

	var reply interface{}
	if len(args) == 0 {
		reply, err = client.GetControllers(ctx, options...)
	} else {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("%w: %q", errInvalidAddress, args[0])
		}
		reply, err = client.GetController(ctx, common.HexToAddress(args[0]), options...)
	}
	if err != nil {
		return err
	}

	replyJSON, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.OutOrStdout(), string(replyJSON))
	return err
}
