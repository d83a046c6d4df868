package contract

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"datamarket/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Dataset Registry ---

// RegisterDataset records a new dataset owned by the calling researcher. The
// dataset insert and the owner's dataset-count increment land in the same
// read-write set, so either both commit or neither does.
func (s *DataMarketSmartContract) RegisterDataset(ctx contractapi.TransactionContextInterface,
	datasetID, title, category, region, collectionDate, methodology, contentHash, accessType, price string) error {

	callerID, err := s.getCallerID(ctx)
	if err != nil {
		return fmt.Errorf("RegisterDataset: failed to get caller identity: %w", err)
	}
	researcher, err := s.getResearcherByID(ctx, callerID)
	if err != nil {
		return fmt.Errorf("RegisterDataset: caller must be a registered researcher: %w", err)
	}

	logger.Infof("Researcher '%s' registering dataset '%s': %s", callerID, datasetID, title)

	if err := s.validateRequiredString(datasetID, "datasetID", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(title, "title", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateRequiredString(category, "category", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateOptionalString(region, "region", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateOptionalString(methodology, "methodology", maxTextInputLength); err != nil {
		return err
	}
	collectedAt, err := parseDateString(collectionDate, "collectionDate", true)
	if err != nil {
		return err
	}
	if err := s.validateContentHash(contentHash); err != nil {
		return err
	}

	at := model.AccessType(strings.ToUpper(strings.TrimSpace(accessType)))
	if !at.Valid() {
		return fmt.Errorf("%w: '%s' is not one of OPEN, PAID, PERMISSIONED", ErrInvalidAccessType, accessType)
	}
	priceValue, err := s.parsePrice(price, at)
	if err != nil {
		return err
	}

	datasetKey, err := s.createDatasetKey(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("RegisterDataset: failed to create dataset key for '%s': %w", datasetID, err)
	}
	existing, err := ctx.GetStub().GetState(datasetKey)
	if err != nil {
		return fmt.Errorf("RegisterDataset: failed to check for existing dataset '%s': %w", datasetID, err)
	}
	if existing != nil {
		return fmt.Errorf("dataset '%s' is %w", datasetID, ErrAlreadyRegistered)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("RegisterDataset: failed to get transaction timestamp: %w", err)
	}

	dataset := model.Dataset{
		ObjectType:     datasetObjectType,
		ID:             datasetID,
		Title:          title,
		Category:       category,
		Region:         region,
		CollectionDate: collectedAt,
		Methodology:    methodology,
		ContentHash:    strings.ToLower(strings.TrimSpace(contentHash)),
		OwnerID:        callerID,
		AccessType:     at,
		Price:          priceValue,
		CitationCount:  0,
		Verified:       false,
		RegisteredAt:   now,
	}
	datasetBytes, err := json.Marshal(dataset)
	if err != nil {
		return fmt.Errorf("RegisterDataset: failed to marshal dataset '%s': %w", datasetID, err)
	}
	if err := ctx.GetStub().PutState(datasetKey, datasetBytes); err != nil {
		return fmt.Errorf("RegisterDataset: failed to save dataset '%s': %w", datasetID, err)
	}

	// Cross-registry write: bump the owner's dataset count in the same tx.
	researcher.DatasetsRegistered++
	researcherBytes, err := json.Marshal(researcher)
	if err != nil {
		return fmt.Errorf("RegisterDataset: failed to marshal researcher '%s': %w", callerID, err)
	}
	researcherKey, err := s.createResearcherKey(ctx, callerID)
	if err != nil {
		return fmt.Errorf("RegisterDataset: failed to create researcher key for '%s': %w", callerID, err)
	}
	if err := ctx.GetStub().PutState(researcherKey, researcherBytes); err != nil {
		return fmt.Errorf("RegisterDataset: failed to update dataset count for researcher '%s': %w", callerID, err)
	}

	s.emitEvent(ctx, "DatasetRegistered", map[string]interface{}{
		"datasetId":    datasetID,
		"title":        title,
		"ownerId":      callerID,
		"accessType":   string(at),
		"price":        priceValue,
		"registeredAt": now,
	})
	logger.Infof("Dataset '%s' registered successfully by researcher '%s' (%s access)", datasetID, callerID, at)
	return nil
}

// GetDataset returns the metadata record for one dataset.
func (s *DataMarketSmartContract) GetDataset(ctx contractapi.TransactionContextInterface, datasetID string) (*model.Dataset, error) {
	logger.Debugf("GetDataset: querying '%s'", datasetID)
	return s.getDatasetByID(ctx, datasetID)
}

// GetDatasetsByOwner returns all datasets owned by the given researcher.
func (s *DataMarketSmartContract) GetDatasetsByOwner(ctx contractapi.TransactionContextInterface, ownerID string) ([]*model.Dataset, error) {
	logger.Debugf("GetDatasetsByOwner: querying datasets owned by '%s'", ownerID)
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: ownerID cannot be empty", ErrInvalidParameters)
	}

	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(datasetObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("GetDatasetsByOwner: failed to get datasets iterator: %w", err)
	}
	defer resultsIterator.Close()

	datasets := []*model.Dataset{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetDatasetsByOwner: failed to get next dataset from iterator: %v. Skipping.", iterErr)
			continue
		}
		var dataset model.Dataset
		if err := json.Unmarshal(queryResponse.Value, &dataset); err != nil {
			logger.Warningf("GetDatasetsByOwner: failed to unmarshal dataset record for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		if dataset.OwnerID == ownerID {
			ds := dataset
			datasets = append(datasets, &ds)
		}
	}
	return datasets, nil
}

// GetAllDatasets returns a page of dataset records. pageSizeStr is optional
// and clamped to maxPageSize; bookmark comes from a previous page's response.
func (s *DataMarketSmartContract) GetAllDatasets(ctx contractapi.TransactionContextInterface, pageSizeStr, bookmark string) (*model.PaginatedDatasetResponse, error) {
	logger.Debugf("GetAllDatasets: pageSize='%s' bookmark='%s'", pageSizeStr, bookmark)

	pageSize := defaultPageSize
	if strings.TrimSpace(pageSizeStr) != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(pageSizeStr))
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%w: pageSize '%s' must be a positive integer", ErrInvalidParameters, pageSizeStr)
		}
		pageSize = parsed
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	resultsIterator, metadata, err := ctx.GetStub().GetStateByPartialCompositeKeyWithPagination(datasetObjectType, []string{}, int32(pageSize), bookmark)
	if err != nil {
		return nil, fmt.Errorf("GetAllDatasets: failed to get paginated datasets iterator: %w", err)
	}
	defer resultsIterator.Close()

	datasets := []*model.Dataset{}
	var fetchedCount int32
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetAllDatasets: failed to get next dataset from iterator: %v. Skipping.", iterErr)
			continue
		}
		var dataset model.Dataset
		if err := json.Unmarshal(queryResponse.Value, &dataset); err != nil {
			logger.Warningf("GetAllDatasets: failed to unmarshal dataset record for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		ds := dataset
		datasets = append(datasets, &ds)
		fetchedCount++
	}

	return &model.PaginatedDatasetResponse{
		Datasets:     datasets,
		NextBookmark: metadata.GetBookmark(),
		FetchedCount: fetchedCount,
	}, nil
}

// getDatasetByID is an internal helper to retrieve and unmarshal a dataset.
func (s *DataMarketSmartContract) getDatasetByID(ctx contractapi.TransactionContextInterface, datasetID string) (*model.Dataset, error) {
	datasetKey, err := s.createDatasetKey(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset key for '%s': %w", datasetID, err)
	}
	datasetBytes, err := ctx.GetStub().GetState(datasetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset '%s' from ledger: %w", datasetID, err)
	}
	if datasetBytes == nil {
		return nil, fmt.Errorf("%w: dataset '%s' does not exist", ErrUnknownDataset, datasetID)
	}
	var dataset model.Dataset
	if err := json.Unmarshal(datasetBytes, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset '%s': %w", datasetID, err)
	}
	return &dataset, nil
}

// putDataset marshals and saves a dataset record back to world state.
func (s *DataMarketSmartContract) putDataset(ctx contractapi.TransactionContextInterface, dataset *model.Dataset) error {
	datasetKey, err := s.createDatasetKey(ctx, dataset.ID)
	if err != nil {
		return fmt.Errorf("failed to create dataset key for '%s': %w", dataset.ID, err)
	}
	datasetBytes, err := json.Marshal(dataset)
	if err != nil {
		return fmt.Errorf("failed to marshal dataset '%s': %w", dataset.ID, err)
	}
	if err := ctx.GetStub().PutState(datasetKey, datasetBytes); err != nil {
		return fmt.Errorf("failed to save dataset '%s': %w", dataset.ID, err)
	}
	return nil
}

// validateContentHash requires a hex-encoded SHA-256 digest.
func (s *DataMarketSmartContract) validateContentHash(contentHash string) error {
	trimmed := strings.TrimSpace(contentHash)
	if len(trimmed) != contentHashHexLength {
		return fmt.Errorf("%w: contentHash must be a %d-character hex-encoded SHA-256 digest, got %d characters", ErrInvalidParameters, contentHashHexLength, len(trimmed))
	}
	if _, err := hex.DecodeString(trimmed); err != nil {
		return fmt.Errorf("%w: contentHash is not valid hex: %v", ErrInvalidParameters, err)
	}
	return nil
}

// parsePrice parses the access price. The price is meaningful only for PAID
// datasets; for the other access types it is stored as zero.
func (s *DataMarketSmartContract) parsePrice(price string, at model.AccessType) (int64, error) {
	trimmed := strings.TrimSpace(price)
	if trimmed == "" {
		trimmed = "0"
	}
	priceValue, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: price '%s' must be a non-negative integer", ErrInvalidParameters, price)
	}
	if priceValue < 0 {
		return 0, fmt.Errorf("%w: price cannot be negative", ErrInvalidParameters)
	}
	if at != model.AccessPaid {
		return 0, nil
	}
	return priceValue, nil
}
