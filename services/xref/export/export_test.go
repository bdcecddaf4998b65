// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDestination(t *testing.T) {
	tests := []struct {
		in      string
		want    Destination
		wantErr bool
	}{
		{in: "out/report.json", want: Destination{Path: "out/report.json"}},
		{in: "gs://bucket/reports/run.json", want: Destination{Bucket: "bucket", Object: "reports/run.json"}},
		{in: "gs://bucket", wantErr: true},
		{in: "gs:///obj", wantErr: true},
		{in: "gs://bucket/dir/", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDestination(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDestination)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestWrite_Local(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.json")
	dest, err := ParseDestination(path)
	require.NoError(t, err)

	require.NoError(t, Write(context.Background(), []byte(`{"ok":true}`), dest, Options{}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWrite_GCSMissingCredentials(t *testing.T) {
	dest, err := ParseDestination("gs://bucket/report.json")
	require.NoError(t, err)

	err = Write(context.Background(), []byte("{}"), dest, Options{
		CredentialsFile: filepath.Join(t.TempDir(), "missing.json"),
	})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
