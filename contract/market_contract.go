package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("datamarket.marketcontract")

// Object types used for composite keys and as 'docType' for CouchDB queries.
const (
	researcherObjectType = "Researcher"
	datasetObjectType    = "Dataset"
	grantObjectType      = "AccessGrant"
	citationObjectType   = "Citation"
	proposalObjectType   = "Proposal"
	voteObjectType       = "Vote"
	walletObjectType     = "Wallet"
	transferObjectType   = "TransferRecord"
)

// Singleton scalar keys.
const (
	adminStateKey  = "AdminState"  // Current administrator identity
	proposalSeqKey = "ProposalSeq" // Last allocated proposal id
)

// Constants for input validation and limits.
const (
	maxStringInputLength = 256
	maxTextInputLength   = 1024
	maxContextLength     = 512
	contentHashHexLength = 64 // Hex-encoded SHA-256 digest
	defaultPageSize      = 50
	maxPageSize          = 200
)

// DataMarketSmartContract provides functions for managing the market-research
// dataset registry, access control, attribution, and governance.
// @contract:DataMarketSmartContract
type DataMarketSmartContract struct {
	contractapi.Contract
}

// Instantiate is called during chaincode instantiation.
func (s *DataMarketSmartContract) Instantiate(ctx contractapi.TransactionContextInterface) {
	logger.Info("DataMarketSmartContract Instantiated/Upgraded")
}

// --- Core Helper Methods (used across multiple operations) ---

// getCurrentTxTimestamp retrieves the current transaction timestamp from the
// stub. It is the only clock any operation may observe: all endorsers of a
// call see the same value, and the ordered log keeps it non-decreasing.
func (s *DataMarketSmartContract) getCurrentTxTimestamp(ctx contractapi.TransactionContextInterface) (time.Time, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

// getCallerID returns the authenticated identity of the transaction invoker.
// Signature verification is the peer's responsibility; the contract treats the
// identity as an opaque string.
func (s *DataMarketSmartContract) getCallerID(ctx contractapi.TransactionContextInterface) (string, error) {
	clientIdentity := ctx.GetClientIdentity()
	if clientIdentity == nil {
		return "", errors.New("client identity is nil from context")
	}
	id, err := clientIdentity.GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client identity ID from context: %w", err)
	}
	if id == "" {
		return "", errors.New("client identity ID from context is empty")
	}
	return id, nil
}

// --- Key Creation Helpers (using Composite Keys) ---

func (s *DataMarketSmartContract) createResearcherKey(ctx contractapi.TransactionContextInterface, researcherID string) (string, error) {
	researcherID = strings.TrimSpace(researcherID)
	if researcherID == "" {
		return "", fmt.Errorf("%w: researcherID cannot be empty", ErrInvalidParameters)
	}
	return ctx.GetStub().CreateCompositeKey(researcherObjectType, []string{researcherID})
}

func (s *DataMarketSmartContract) createDatasetKey(ctx contractapi.TransactionContextInterface, datasetID string) (string, error) {
	datasetID = strings.TrimSpace(datasetID)
	if datasetID == "" {
		return "", fmt.Errorf("%w: datasetID cannot be empty", ErrInvalidParameters)
	}
	return ctx.GetStub().CreateCompositeKey(datasetObjectType, []string{datasetID})
}

func (s *DataMarketSmartContract) createGrantKey(ctx contractapi.TransactionContextInterface, datasetID, granteeID string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(grantObjectType, []string{datasetID, granteeID})
}

func (s *DataMarketSmartContract) createCitationKey(ctx contractapi.TransactionContextInterface, datasetID, researcherID string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(citationObjectType, []string{datasetID, researcherID})
}

// --- Validation Helper Functions ---

// Malformed input always classifies as ErrInvalidParameters.

func (s *DataMarketSmartContract) validateRequiredString(input, field string, max int) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidParameters, field)
	}
	if len(input) > max {
		return fmt.Errorf("%w: %s exceeds max length %d", ErrInvalidParameters, field, max)
	}
	return nil
}

func (s *DataMarketSmartContract) validateOptionalString(input, field string, max int) error {
	if input != "" && len(input) > max {
		return fmt.Errorf("%w: %s exceeds max length %d", ErrInvalidParameters, field, max)
	}
	return nil
}

func parseDateString(str, field string, required bool) (time.Time, error) {
	sTrimmed := strings.TrimSpace(str)
	if sTrimmed == "" {
		if required {
			return time.Time{}, fmt.Errorf("%w: %s is a required date field and cannot be empty", ErrInvalidParameters, field)
		}
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, sTrimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid format for %s (expected RFC3339 'YYYY-MM-DDTHH:MM:SSZ'): %v", ErrInvalidParameters, field, err)
	}
	return t, nil
}

// --- Event Helper ---

// emitEvent sends a chaincode event. Event failures are logged, never fatal:
// the state transition has already been staged and must not be aborted by a
// notification problem.
func (s *DataMarketSmartContract) emitEvent(ctx contractapi.TransactionContextInterface, eventName string, payload map[string]interface{}) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	for k, v := range payload {
		if t, ok := v.(time.Time); ok {
			payload[k] = t.Format(time.RFC3339)
		}
	}
	eventBytes, err := json.Marshal(payload)
	if err != nil {
		logger.Warningf("emitEvent: failed to marshal payload for event '%s': %v", eventName, err)
		return
	}
	if errSet := ctx.GetStub().SetEvent(eventName, eventBytes); errSet != nil {
		logger.Warningf("emitEvent: failed to set event '%s': %v", eventName, errSet)
	}
}
