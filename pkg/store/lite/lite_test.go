// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package lite_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hybridledger/consensus-core/pkg/store"
	"github.com/hybridledger/consensus-core/pkg/store/lite"
	"github.com/hybridledger/consensus-core/pkg/store/storetest"
)

func openTestStore(t *testing.T) store.BlockchainStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lite.db")
	s, err := lite.Open(path, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLiteConformance(t *testing.T) {
	storetest.RunConformance(t, openTestStore(t))
}

func TestLiteTransactionConformance(t *testing.T) {
	storetest.RunTransactionConformance(t, openTestStore(t))
}

func TestLiteDriverRegistered(t *testing.T) {
	drv, err := store.From(lite.DriverName)
	require.NoError(t, err)
	require.Equal(t, lite.DriverName, drv.Name())
}
