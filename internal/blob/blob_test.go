package blob

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"fs":     fs,
		"memory": NewMemory(),
		"s3":     NewMockS3ForTests(),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := Key("models", "case1", "run-1.pip")
			info, err := s.Put(ctx, key, bytes.NewReader([]byte("Maximize\n")), PutOptions{ContentType: "text/plain"})
			require.NoError(t, err)
			require.Equal(t, key, info.Key)
			require.EqualValues(t, 9, info.Size)

			_, err = s.Put(ctx, key, bytes.NewReader([]byte("again")), PutOptions{})
			require.ErrorIs(t, err, ErrExists)

			got, rc, err := s.Get(ctx, key)
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			require.Equal(t, "Maximize\n", string(body))
			require.Equal(t, "text/plain", got.ContentType)

			_, err = s.Put(ctx, Key("solutions", "case1", "a.json"), bytes.NewReader([]byte("{}")), PutOptions{})
			require.NoError(t, err)
			list, err := s.List(ctx, "models/")
			require.NoError(t, err)
			require.Len(t, list, 1)
			require.Equal(t, key, list[0].Key)
			all, err := s.List(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 2)
			require.Equal(t, "models/case1/run-1.pip", all[0].Key)

			ok, err := s.Delete(ctx, key)
			require.NoError(t, err)
			require.True(t, ok)
			ok, err = s.Delete(ctx, key)
			require.NoError(t, err)
			require.False(t, ok)

			_, _, err = s.Get(ctx, key)
			require.ErrorIs(t, err, ErrNotFound)
			_, err = s.Head(ctx, key)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	type report struct {
		Case      string  `json:"case"`
		Objective float64 `json:"objective"`
	}
	info, err := PutJSON(ctx, s, "solutions/case2/r.json", report{Case: "case2", Objective: 12.5}, map[string]string{"termination": "optimal"})
	require.NoError(t, err)
	require.Equal(t, "application/json", info.ContentType)
	require.Equal(t, "optimal", info.Metadata["termination"])

	var back report
	require.NoError(t, GetJSON(ctx, s, "solutions/case2/r.json", &back))
	require.Equal(t, report{Case: "case2", Objective: 12.5}, back)
	require.ErrorIs(t, GetJSON(ctx, s, "missing.json", &back), ErrNotFound)
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	require.Equal(t, DriverMemory, s.Driver())

	s, err = Open(ctx, Config{FSRoot: t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, DriverFilesystem, s.Driver())

	_, err = Open(ctx, Config{Driver: DriverS3})
	require.ErrorContains(t, err, "bucket")

	_, err = Open(ctx, Config{Driver: "ftp"})
	require.Error(t, err)
}
