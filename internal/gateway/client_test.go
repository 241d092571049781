// SPDX-License-Identifier: MIT

package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermark/mediad/internal/netpolicy"
)

var testPolicy = netpolicy.Policy{AllowPrivate: true, AllowHTTP: true}

const testCID = "bafybeigdyrztg6bzjsjcq2eybqzqdbxjh7wqy4dxyv2d4ykmdyi4bkbopu"

func TestFetchFromFirstGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ipfs/"+testCID, r.URL.Path)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	c := New([]string{srv.URL}, nil, testPolicy, 0)
	data, contentType, err := c.Fetch(context.Background(), testCID)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", contentType)
}

func TestFetchFallsBackToNextGateway(t *testing.T) {
	var firstHits atomic.Int64
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		firstHits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("from-second"))
	}))
	defer working.Close()

	c := New([]string{broken.URL, working.URL}, nil, testPolicy, 0)
	data, _, err := c.Fetch(context.Background(), testCID)
	require.NoError(t, err)
	assert.Equal(t, "from-second", string(data))
	assert.Equal(t, int64(1), firstHits.Load())
}

func TestFetchAllGatewaysFailing(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer broken.Close()

	c := New([]string{broken.URL, broken.URL}, nil, testPolicy, 0)
	_, _, err := c.Fetch(context.Background(), testCID)
	assert.Error(t, err)
}

func TestFetchEnforcesSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	c := New([]string{srv.URL}, nil, testPolicy, 1024)
	_, _, err := c.Fetch(context.Background(), testCID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cap")
}

func TestFetchRejectsInvalidHash(t *testing.T) {
	c := New(nil, nil, testPolicy, 0)
	for _, hash := range []string{"", "short", "bad/hash" + strings.Repeat("a", 40), strings.Repeat("a", 200)} {
		_, _, err := c.Fetch(context.Background(), hash)
		assert.Error(t, err, "hash %q must be rejected", hash)
	}
}

func TestFetchStopsOnCallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go cancel()

	c := New([]string{srv.URL, srv.URL}, nil, testPolicy, 0)
	_, _, err := c.Fetch(ctx, testCID)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidCID(t *testing.T) {
	assert.True(t, ValidCID(testCID))
	assert.True(t, ValidCID("QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"))
	assert.False(t, ValidCID("too-short"))
	assert.False(t, ValidCID(strings.Repeat("a", 129)))
	assert.False(t, ValidCID(strings.Repeat("a", 39)+"!"))
}
