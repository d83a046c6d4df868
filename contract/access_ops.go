package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"datamarket/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Access Control Engine ---

// CheckDatasetAccess is the pure read path that gates dataset content
// delivery. It never mutates state: Open datasets admit everyone, owners
// always have access, and everyone else needs a recorded grant.
func (s *DataMarketSmartContract) CheckDatasetAccess(ctx contractapi.TransactionContextInterface, datasetID, requesterID string) (bool, error) {
	logger.Debugf("CheckDatasetAccess: dataset '%s', requester '%s'", datasetID, requesterID)
	if strings.TrimSpace(requesterID) == "" {
		return false, fmt.Errorf("%w: requesterID cannot be empty", ErrInvalidParameters)
	}

	dataset, err := s.getDatasetByID(ctx, datasetID)
	if err != nil {
		return false, fmt.Errorf("CheckDatasetAccess: %w", err)
	}
	if dataset.AccessType == model.AccessOpen {
		return true, nil
	}
	if dataset.OwnerID == requesterID {
		return true, nil
	}

	grant, err := s.getGrant(ctx, datasetID, requesterID)
	if err != nil {
		return false, fmt.Errorf("CheckDatasetAccess: %w", err)
	}
	return grant != nil && grant.Access, nil
}

// GrantDatasetAccess lets the dataset owner issue a manual grant. No
// access-type restriction applies: Open datasets need no grant and Paid access
// normally comes from a purchase, but an owner may still comp access.
func (s *DataMarketSmartContract) GrantDatasetAccess(ctx contractapi.TransactionContextInterface, datasetID, granteeID string) error {
	callerID, err := s.getCallerID(ctx)
	if err != nil {
		return fmt.Errorf("GrantDatasetAccess: failed to get caller identity: %w", err)
	}
	if err := s.validateRequiredString(granteeID, "granteeID", maxStringInputLength); err != nil {
		return err
	}

	dataset, err := s.getDatasetByID(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("GrantDatasetAccess: %w", err)
	}
	if dataset.OwnerID != callerID {
		return fmt.Errorf("%w: caller '%s' does not own dataset '%s'", ErrNotAuthorized, callerID, datasetID)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("GrantDatasetAccess: failed to get transaction timestamp: %w", err)
	}
	if err := s.putGrant(ctx, &model.AccessGrant{
		ObjectType: grantObjectType,
		DatasetID:  datasetID,
		GranteeID:  granteeID,
		Access:     true,
		GrantedBy:  callerID,
		GrantedAt:  now,
	}); err != nil {
		return fmt.Errorf("GrantDatasetAccess: %w", err)
	}

	s.emitEvent(ctx, "AccessGranted", map[string]interface{}{
		"datasetId": datasetID,
		"granteeId": granteeID,
		"grantedBy": callerID,
		"grantedAt": now,
	})
	logger.Infof("Owner '%s' granted access on dataset '%s' to '%s'", callerID, datasetID, granteeID)
	return nil
}

// AccessPaidDataset purchases access to a Paid dataset for the caller. The
// payment and the grant are staged in the same read-write set, and the wallet
// transfer validates before writing, so no interleaving can leave a
// paid-but-ungranted or granted-but-unpaid state.
func (s *DataMarketSmartContract) AccessPaidDataset(ctx contractapi.TransactionContextInterface, datasetID string) error {
	callerID, err := s.getCallerID(ctx)
	if err != nil {
		return fmt.Errorf("AccessPaidDataset: failed to get caller identity: %w", err)
	}

	dataset, err := s.getDatasetByID(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("AccessPaidDataset: %w", err)
	}
	if dataset.AccessType != model.AccessPaid {
		return fmt.Errorf("%w: dataset '%s' has %s access, only PAID datasets can be purchased", ErrInvalidAccessType, datasetID, dataset.AccessType)
	}

	logger.Infof("Identity '%s' purchasing access to dataset '%s' for %d tokens", callerID, datasetID, dataset.Price)

	if err := NewWalletLedger(ctx).Transfer(callerID, dataset.OwnerID, dataset.Price, model.TransferKindPurchase); err != nil {
		return fmt.Errorf("AccessPaidDataset: payment for dataset '%s': %w", datasetID, err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("AccessPaidDataset: failed to get transaction timestamp: %w", err)
	}
	if err := s.putGrant(ctx, &model.AccessGrant{
		ObjectType: grantObjectType,
		DatasetID:  datasetID,
		GranteeID:  callerID,
		Access:     true,
		GrantedBy:  dataset.OwnerID,
		GrantedAt:  now,
	}); err != nil {
		return fmt.Errorf("AccessPaidDataset: %w", err)
	}

	s.emitEvent(ctx, "AccessPurchased", map[string]interface{}{
		"datasetId": datasetID,
		"buyerId":   callerID,
		"ownerId":   dataset.OwnerID,
		"price":     dataset.Price,
		"grantedAt": now,
	})
	logger.Infof("Identity '%s' purchased access to dataset '%s'", callerID, datasetID)
	return nil
}

// GetAccessGrant returns the grant record for (dataset, grantee), if any.
func (s *DataMarketSmartContract) GetAccessGrant(ctx contractapi.TransactionContextInterface, datasetID, granteeID string) (*model.AccessGrant, error) {
	logger.Debugf("GetAccessGrant: dataset '%s', grantee '%s'", datasetID, granteeID)
	if _, err := s.getDatasetByID(ctx, datasetID); err != nil {
		return nil, fmt.Errorf("GetAccessGrant: %w", err)
	}
	grant, err := s.getGrant(ctx, datasetID, granteeID)
	if err != nil {
		return nil, fmt.Errorf("GetAccessGrant: %w", err)
	}
	if grant == nil {
		return nil, fmt.Errorf("%w: no grant recorded for '%s' on dataset '%s'", ErrAccessDenied, granteeID, datasetID)
	}
	return grant, nil
}

// getGrant is an internal helper returning the grant record for (dataset,
// grantee), or nil when none exists.
func (s *DataMarketSmartContract) getGrant(ctx contractapi.TransactionContextInterface, datasetID, granteeID string) (*model.AccessGrant, error) {
	grantKey, err := s.createGrantKey(ctx, datasetID, granteeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create grant key for dataset '%s', grantee '%s': %w", datasetID, granteeID, err)
	}
	grantBytes, err := ctx.GetStub().GetState(grantKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read grant for dataset '%s', grantee '%s': %w", datasetID, granteeID, err)
	}
	if grantBytes == nil {
		return nil, nil
	}
	var grant model.AccessGrant
	if err := json.Unmarshal(grantBytes, &grant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grant for dataset '%s', grantee '%s': %w", datasetID, granteeID, err)
	}
	return &grant, nil
}

// putGrant upserts a grant record.
func (s *DataMarketSmartContract) putGrant(ctx contractapi.TransactionContextInterface, grant *model.AccessGrant) error {
	grantKey, err := s.createGrantKey(ctx, grant.DatasetID, grant.GranteeID)
	if err != nil {
		return fmt.Errorf("failed to create grant key for dataset '%s', grantee '%s': %w", grant.DatasetID, grant.GranteeID, err)
	}
	grantBytes, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("failed to marshal grant for dataset '%s', grantee '%s': %w", grant.DatasetID, grant.GranteeID, err)
	}
	if err := ctx.GetStub().PutState(grantKey, grantBytes); err != nil {
		return fmt.Errorf("failed to save grant for dataset '%s', grantee '%s': %w", grant.DatasetID, grant.GranteeID, err)
	}
	return nil
}
