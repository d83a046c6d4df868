package contract

import (
	"encoding/json"
	"fmt"

	"datamarket/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Citation Ledger ---

// ReferenceDataset records the calling researcher's citation of a dataset.
// One citation record exists per (dataset, researcher) pair: a repeat call
// overwrites the context and timestamp. The dataset's citation count goes up
// by one on the first citation only, so repeat citations never inflate it.
func (s *DataMarketSmartContract) ReferenceDataset(ctx contractapi.TransactionContextInterface, datasetID, citationContext string) error {
	callerID, err := s.getCallerID(ctx)
	if err != nil {
		return fmt.Errorf("ReferenceDataset: failed to get caller identity: %w", err)
	}

	dataset, err := s.getDatasetByID(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("ReferenceDataset: %w", err)
	}
	if _, err := s.getResearcherByID(ctx, callerID); err != nil {
		return fmt.Errorf("ReferenceDataset: caller must be a registered researcher: %w", err)
	}
	if err := s.validateOptionalString(citationContext, "context", maxContextLength); err != nil {
		return err
	}

	citationKey, err := s.createCitationKey(ctx, datasetID, callerID)
	if err != nil {
		return fmt.Errorf("ReferenceDataset: failed to create citation key: %w", err)
	}
	existing, err := ctx.GetStub().GetState(citationKey)
	if err != nil {
		return fmt.Errorf("ReferenceDataset: failed to check for existing citation: %w", err)
	}
	firstCitation := existing == nil

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("ReferenceDataset: failed to get transaction timestamp: %w", err)
	}
	citation := model.Citation{
		ObjectType:   citationObjectType,
		DatasetID:    datasetID,
		ResearcherID: callerID,
		Context:      citationContext,
		CitedAt:      now,
	}
	citationBytes, err := json.Marshal(citation)
	if err != nil {
		return fmt.Errorf("ReferenceDataset: failed to marshal citation: %w", err)
	}
	if err := ctx.GetStub().PutState(citationKey, citationBytes); err != nil {
		return fmt.Errorf("ReferenceDataset: failed to save citation: %w", err)
	}

	if firstCitation {
		dataset.CitationCount++
		if err := s.putDataset(ctx, dataset); err != nil {
			return fmt.Errorf("ReferenceDataset: failed to update citation count for dataset '%s': %w", datasetID, err)
		}
	}

	s.emitEvent(ctx, "DatasetCited", map[string]interface{}{
		"datasetId":     datasetID,
		"researcherId":  callerID,
		"firstCitation": firstCitation,
		"citedAt":       now,
	})
	logger.Infof("Researcher '%s' cited dataset '%s' (first: %t)", callerID, datasetID, firstCitation)
	return nil
}

// GetCitation returns the citation record for one (dataset, researcher) pair.
func (s *DataMarketSmartContract) GetCitation(ctx contractapi.TransactionContextInterface, datasetID, researcherID string) (*model.Citation, error) {
	logger.Debugf("GetCitation: dataset '%s', researcher '%s'", datasetID, researcherID)
	if _, err := s.getDatasetByID(ctx, datasetID); err != nil {
		return nil, fmt.Errorf("GetCitation: %w", err)
	}

	citationKey, err := s.createCitationKey(ctx, datasetID, researcherID)
	if err != nil {
		return nil, fmt.Errorf("GetCitation: failed to create citation key: %w", err)
	}
	citationBytes, err := ctx.GetStub().GetState(citationKey)
	if err != nil {
		return nil, fmt.Errorf("GetCitation: failed to read citation: %w", err)
	}
	if citationBytes == nil {
		return nil, fmt.Errorf("%w: no citation by '%s' for dataset '%s'", ErrInvalidParameters, researcherID, datasetID)
	}
	var citation model.Citation
	if err := json.Unmarshal(citationBytes, &citation); err != nil {
		return nil, fmt.Errorf("GetCitation: failed to unmarshal citation: %w", err)
	}
	return &citation, nil
}

// GetCitationsForDataset returns all citation records for one dataset.
func (s *DataMarketSmartContract) GetCitationsForDataset(ctx contractapi.TransactionContextInterface, datasetID string) ([]model.Citation, error) {
	logger.Debugf("GetCitationsForDataset: dataset '%s'", datasetID)
	if _, err := s.getDatasetByID(ctx, datasetID); err != nil {
		return nil, fmt.Errorf("GetCitationsForDataset: %w", err)
	}

	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(citationObjectType, []string{datasetID})
	if err != nil {
		return nil, fmt.Errorf("GetCitationsForDataset: failed to get citations iterator: %w", err)
	}
	defer resultsIterator.Close()

	citations := []model.Citation{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetCitationsForDataset: failed to get next citation from iterator: %v. Skipping.", iterErr)
			continue
		}
		var citation model.Citation
		if err := json.Unmarshal(queryResponse.Value, &citation); err != nil {
			logger.Warningf("GetCitationsForDataset: failed to unmarshal citation for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		citations = append(citations, citation)
	}
	return citations, nil
}
