package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestNewMediaFile_Image(t *testing.T) {
	d := 3.0
	meta := RemoteMetadata{
		PublicID:     "petmarket/pet/rex_1_abc",
		URL:          "http://cdn/rex.jpg",
		SecureURL:    "https://cdn/rex.jpg",
		ResourceType: ResourceImage,
		Format:       "jpg",
		Width:        intPtr(800),
		Height:       intPtr(600),
		Bytes:        12345,
		Duration:     &d,
	}
	id := int64(7)

	f := NewMediaFile(meta, EntityContext{Type: EntityPet, ID: &id})

	assert.Equal(t, ResourceImage, f.ResourceType)
	assert.Nil(t, f.Duration)
	require.NotNil(t, f.Width)
	assert.Equal(t, 800, *f.Width)
	assert.Equal(t, 600, *f.Height)
	assert.Equal(t, int64(12345), f.Bytes)
	assert.Equal(t, EntityPet, f.EntityType)
	assert.Equal(t, int64(7), *f.EntityID)
	assert.Nil(t, f.OriginalFilename)
}

func TestNewMediaFile_VideoKeepsDuration(t *testing.T) {
	d := 42.5
	f := NewMediaFile(RemoteMetadata{PublicID: "v", ResourceType: ResourceVideo, Duration: &d, OriginalFilename: "clip.mp4"}, EntityContext{})

	require.NotNil(t, f.Duration)
	assert.Equal(t, 42.5, *f.Duration)
	assert.Equal(t, EntityGeneral, f.EntityType)
	require.NotNil(t, f.OriginalFilename)
	assert.Equal(t, "clip.mp4", *f.OriginalFilename)
}

func TestParseEntityType(t *testing.T) {
	for in, want := range map[string]EntityType{"": EntityGeneral, "Pet": EntityPet, "event": EntityEvent, " breed ": EntityBreed} {
		got, err := ParseEntityType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseEntityType("booking")
	assert.Error(t, err)
}

func TestResourceTypeForMIME(t *testing.T) {
	assert.Equal(t, ResourceVideo, ResourceTypeForMIME("video/mp4"))
	assert.Equal(t, ResourceImage, ResourceTypeForMIME("image/png"))
	assert.Equal(t, ResourceImage, ResourceTypeForMIME(""))
}
