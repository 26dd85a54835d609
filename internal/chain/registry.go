package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// registryABIJSON matches the certificate registry contract surface used by
// the issuance pipeline and the public verification endpoint.
const registryABIJSON = `[
  {"type":"function","name":"issueCertificate","stateMutability":"nonpayable","inputs":[{"name":"certificateId","type":"string"},{"name":"studentName","type":"string"},{"name":"studentId","type":"string"},{"name":"degree","type":"string"},{"name":"institution","type":"string"},{"name":"issueDate","type":"uint256"},{"name":"contentId","type":"string"},{"name":"contentHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"getCertificate","stateMutability":"view","inputs":[{"name":"certificateId","type":"string"}],"outputs":[{"name":"studentName","type":"string"},{"name":"studentId","type":"string"},{"name":"degree","type":"string"},{"name":"institution","type":"string"},{"name":"issueDate","type":"uint256"},{"name":"contentId","type":"string"},{"name":"exists","type":"bool"}]},
  {"type":"function","name":"totalCertificates","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

func parseRegistryABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABIJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse registry abi: %w", err)
	}
	return parsed, nil
}

// IssuanceCall is the write-call payload for one certificate. ContentID and
// ContentHash may be empty when content storage failed; on-chain proof of
// existence is the stronger guarantee.
type IssuanceCall struct {
	CertificateID string
	StudentName   string
	StudentID     string
	Degree        string
	Institution   string
	IssueDate     int64
	ContentID     string
	ContentHash   string
}

func (c *Client) packIssuance(call IssuanceCall) ([]byte, error) {
	if call.CertificateID == "" {
		return nil, fmt.Errorf("issuance call missing certificate identifier")
	}
	var contentHash common.Hash
	if call.ContentHash != "" {
		contentHash = common.HexToHash(call.ContentHash)
	}
	data, err := c.registryABI.Pack(
		"issueCertificate",
		call.CertificateID,
		call.StudentName,
		call.StudentID,
		call.Degree,
		call.Institution,
		new(big.Int).SetInt64(call.IssueDate),
		call.ContentID,
		contentHash,
	)
	if err != nil {
		return nil, fmt.Errorf("pack issueCertificate: %w", err)
	}
	return data, nil
}
