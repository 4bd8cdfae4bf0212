package document

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadAndServe(t *testing.T) {
	root := t.TempDir()
	store := NewDiskStore(root, "http://localhost:8080/documents/")

	stored, err := store.Upload(context.Background(), "rentify/contracts", "contract-b1-1700000000000.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "rentify/contracts/contract-b1-1700000000000.pdf", stored.Key)
	assert.Equal(t, "http://localhost:8080/documents/rentify/contracts/contract-b1-1700000000000.pdf", stored.URL)

	data, err := os.ReadFile(filepath.Join(root, "rentify", "contracts", "contract-b1-1700000000000.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	srv := httptest.NewServer(http.StripPrefix("/documents/", store.Handler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/documents/" + stored.Key)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "%PDF-1.4", string(body))

	resp, err = http.Get(srv.URL + "/documents/rentify/contracts/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadRejectsTraversal(t *testing.T) {
	store := NewDiskStore(t.TempDir(), "http://localhost/documents")

	_, err := store.Upload(context.Background(), "../etc", "passwd", strings.NewReader("x"))
	assert.Error(t, err)

	_, err = store.Upload(context.Background(), "contracts", "../x.pdf", strings.NewReader("x"))
	assert.Error(t, err)
}
