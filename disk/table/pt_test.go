package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGUIDMixedEndian(t *testing.T) {
	raw := []byte{0xAF, 0x3D, 0xC6, 0x0F, 0x83, 0x84, 0x72, 0x47, 0x8E, 0x79, 0x3D, 0x69, 0xD8, 0x47, 0x7D, 0xE4}
	assert.Equal(t, LinuxFSData, GUIDToString(raw))

	parsed, err := GUIDFromString(LinuxFSData)
	require.NoError(t, err)
	assert.Equal(t, raw, parsed[:])

	_, err = GUIDFromString("not-a-guid")
	assert.Error(t, err)
	assert.Equal(t, "", GUIDToString(raw[:3]))
}

func TestNewRandomGUIDIsUnique(t *testing.T) {
	a, b := NewRandomGUID(), NewRandomGUID()
	assert.NotEqual(t, a, b)
	assert.Len(t, GUIDToString(a[:]), 36)
}

func TestGetDiskType(t *testing.T) {
	f := newImage(t, 2048)
	dt, err := GetDiskType(f, MBRDefaultLBASize)
	require.NoError(t, err)
	assert.Equal(t, DTypeRAW, dt)

	writeBR(t, f, NewEmptyMBR(), 0)
	dt, err = GetDiskType(f, MBRDefaultLBASize)
	require.NoError(t, err)
	assert.Equal(t, DTypeMBR, dt)

	writeBR(t, f, NewProtectiveMBR(2048), 0)
	dt, err = GetDiskType(f, MBRDefaultLBASize)
	require.NoError(t, err)
	assert.Equal(t, DTypeGPT, dt)
}
