// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package serve

import (
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ava-labs/keymanager/datakeys"
	"github.com/ava-labs/keymanager/keymanager"
	"github.com/ava-labs/keymanager/permissions"
	"github.com/ava-labs/keymanager/profile"
	"github.com/ava-labs/keymanager/utils/logging"
)

// bootstrap grants every permission to [controller] if the profile has no
// controllers yet. It reports whether anything was written.
func bootstrap(log logging.Logger, p *profile.Profile, controller common.Address) (bool, error) {
	if controller == (common.Address{}) {
		return false, nil
	}

	controllers, err := keymanager.NewStore(p).Controllers()
	if err != nil {
		return false, err
	}
	if len(controllers) != 0 {
		log.Debug("skipping controller bootstrap",
			zap.Int("numControllers", len(controllers)),
		)
		return false, nil
	}

	writes := []struct {
		key   common.Hash
		value []byte
	}{
		{key: datakeys.AddressPermissionsArrayKey, value: datakeys.EncodeArrayLength(1)},
		{key: datakeys.ArrayIndexKey(0), value: controller.Bytes()},
		{key: datakeys.PermissionsKey(controller), value: permissions.All.Bytes()},
	}
	id := p.Snapshot()
	for _, w := range writes {
		if err := p.SetData(w.key, w.value); err != nil {
			p.RevertToSnapshot(id)
			return false, err
		}
	}
	if err := p.Finalise(); err != nil {
		return false, err
	}

	log.Info("bootstrapped controller",
		zap.Stringer("controller", controller),
		zap.String("permissions", permissions.All.Describe()),
	)
	return true, nil
}
