package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	ipfsapi "github.com/ipfs/go-ipfs-api"
	"go.uber.org/zap"
)

// StoreResult carries the content identifier for a stored document.
// Confirmed is false when the identifier is a local fallback rather than a
// pinned IPFS CID; callers must not gate correctness on it.
type StoreResult struct {
	ContentID string
	Confirmed bool
}

// ContentStore pushes rendered documents into IPFS. When no API endpoint is
// configured it degrades to a deterministic local identifier derived from the
// content digest, so issuance never depends on IPFS availability.
type ContentStore struct {
	shell      *ipfsapi.Shell
	gatewayURL string
	logger     *zap.Logger
}

// NewContentStore builds a store. Empty apiURL leaves the store in fallback mode.
func NewContentStore(apiURL, gatewayURL string, logger *zap.Logger) *ContentStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	var shell *ipfsapi.Shell
	if apiURL != "" {
		shell = ipfsapi.NewShell(apiURL)
	}
	return &ContentStore{shell: shell, gatewayURL: strings.TrimRight(gatewayURL, "/"), logger: logger}
}

// Store adds the document bytes and returns its content identifier.
func (s *ContentStore) Store(data []byte) (StoreResult, error) {
	if len(data) == 0 {
		return StoreResult{}, fmt.Errorf("empty content")
	}
	if s.shell == nil {
		return StoreResult{ContentID: localContentID(data), Confirmed: false}, nil
	}
	cid, err := s.shell.Add(bytes.NewReader(data))
	if err != nil {
		return StoreResult{}, fmt.Errorf("ipfs add: %w", err)
	}
	return StoreResult{ContentID: cid, Confirmed: true}, nil
}

// GatewayURL returns the public retrieval URL for a stored content identifier.
// Local fallback identifiers have no retrieval URL.
func (s *ContentStore) GatewayURL(contentID string) string {
	if contentID == "" || strings.HasPrefix(contentID, "local-") || s.gatewayURL == "" {
		return ""
	}
	return s.gatewayURL + "/" + contentID
}

// Digest computes the hex-encoded SHA-256 digest of the document bytes.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func localContentID(data []byte) string {
	return "local-" + Digest(data)
}
