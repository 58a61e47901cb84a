package storage

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var uuidPart = `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, name, pattern string
	}{
		{"xray", "chest.jpg", `^xray/` + uuidPart + `-chest\.jpg$`},
		{"/xray/", "../../etc/passwd", `^xray/` + uuidPart + `-passwd$`},
		{"", `C:\scans\lung.png`, `^` + uuidPart + `-lung\.png$`},
		{"xray", "", `^xray/` + uuidPart + `-upload$`},
	}
	for _, tt := range tests {
		key := ObjectKey(tt.prefix, tt.name)
		assert.Regexp(t, regexp.MustCompile(tt.pattern), key)
	}
	assert.NotEqual(t, ObjectKey("x", "a.jpg"), ObjectKey("x", "a.jpg"))
}

func TestNewS3Store(t *testing.T) {
	_, err := NewS3Store(nil, Config{Bucket: "b"})
	assert.Error(t, err)

	client := Connect(Config{Endpoint: "http://127.0.0.1:9000", Region: "us-east-1", AccessKey: "k", SecretKey: "s"})
	_, err = NewS3Store(client, Config{})
	assert.Error(t, err)

	s, err := NewS3Store(client, Config{Bucket: "xdetect"})
	require.NoError(t, err)
	assert.NotNil(t, s)
}
