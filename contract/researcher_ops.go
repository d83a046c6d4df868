package contract

import (
	"encoding/json"
	"fmt"

	"datamarket/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Researcher Registry ---

// RegisterResearcher registers the calling identity as a researcher.
// Registration is permanent: there is no update or removal operation, and only
// the dataset registry ever mutates the record (to bump the dataset count).
func (s *DataMarketSmartContract) RegisterResearcher(ctx contractapi.TransactionContextInterface, name, institution, credentials string) error {
	callerID, err := s.getCallerID(ctx)
	if err != nil {
		return fmt.Errorf("RegisterResearcher: failed to get caller identity: %w", err)
	}
	logger.Infof("RegisterResearcher: identity '%s' registering as '%s' (%s)", callerID, name, institution)

	if err := s.validateRequiredString(name, "name", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateOptionalString(institution, "institution", maxStringInputLength); err != nil {
		return err
	}
	if err := s.validateOptionalString(credentials, "credentials", maxTextInputLength); err != nil {
		return err
	}

	researcherKey, err := s.createResearcherKey(ctx, callerID)
	if err != nil {
		return fmt.Errorf("RegisterResearcher: failed to create researcher key for '%s': %w", callerID, err)
	}
	existing, err := ctx.GetStub().GetState(researcherKey)
	if err != nil {
		return fmt.Errorf("RegisterResearcher: failed to check for existing researcher '%s': %w", callerID, err)
	}
	if existing != nil {
		return fmt.Errorf("researcher '%s' is %w", callerID, ErrAlreadyRegistered)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("RegisterResearcher: failed to get transaction timestamp: %w", err)
	}

	researcher := model.Researcher{
		ObjectType:         researcherObjectType,
		ID:                 callerID,
		Name:               name,
		Institution:        institution,
		Credentials:        credentials,
		DatasetsRegistered: 0,
		RegisteredAt:       now,
	}
	researcherBytes, err := json.Marshal(researcher)
	if err != nil {
		return fmt.Errorf("RegisterResearcher: failed to marshal researcher '%s': %w", callerID, err)
	}
	if err := ctx.GetStub().PutState(researcherKey, researcherBytes); err != nil {
		return fmt.Errorf("RegisterResearcher: failed to save researcher '%s': %w", callerID, err)
	}

	s.emitEvent(ctx, "ResearcherRegistered", map[string]interface{}{
		"researcherId": callerID,
		"name":         name,
		"institution":  institution,
		"registeredAt": now,
	})
	logger.Infof("Researcher '%s' registered successfully", callerID)
	return nil
}

// GetResearcher returns the profile record for a registered researcher.
func (s *DataMarketSmartContract) GetResearcher(ctx contractapi.TransactionContextInterface, researcherID string) (*model.Researcher, error) {
	logger.Debugf("GetResearcher: querying '%s'", researcherID)
	return s.getResearcherByID(ctx, researcherID)
}

// IsRegisteredResearcher reports whether the given identity has a researcher
// record.
func (s *DataMarketSmartContract) IsRegisteredResearcher(ctx contractapi.TransactionContextInterface, researcherID string) (bool, error) {
	researcherKey, err := s.createResearcherKey(ctx, researcherID)
	if err != nil {
		return false, fmt.Errorf("IsRegisteredResearcher: failed to create researcher key for '%s': %w", researcherID, err)
	}
	existing, err := ctx.GetStub().GetState(researcherKey)
	if err != nil {
		return false, fmt.Errorf("IsRegisteredResearcher: failed to read researcher '%s': %w", researcherID, err)
	}
	return existing != nil, nil
}

// GetAllResearchers returns every registered researcher profile.
func (s *DataMarketSmartContract) GetAllResearchers(ctx contractapi.TransactionContextInterface) ([]model.Researcher, error) {
	logger.Debug("GetAllResearchers: listing all researcher records")

	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(researcherObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("GetAllResearchers: failed to get researchers iterator: %w", err)
	}
	defer resultsIterator.Close()

	researchers := []model.Researcher{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetAllResearchers: failed to get next researcher from iterator: %v. Skipping.", iterErr)
			continue
		}
		var researcher model.Researcher
		if err := json.Unmarshal(queryResponse.Value, &researcher); err != nil {
			logger.Warningf("GetAllResearchers: failed to unmarshal researcher record for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		researchers = append(researchers, researcher)
	}
	return researchers, nil
}

// getResearcherByID is an internal helper to retrieve and unmarshal a
// researcher record.
func (s *DataMarketSmartContract) getResearcherByID(ctx contractapi.TransactionContextInterface, researcherID string) (*model.Researcher, error) {
	researcherKey, err := s.createResearcherKey(ctx, researcherID)
	if err != nil {
		return nil, fmt.Errorf("failed to create researcher key for '%s': %w", researcherID, err)
	}
	researcherBytes, err := ctx.GetStub().GetState(researcherKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read researcher '%s' from ledger: %w", researcherID, err)
	}
	if researcherBytes == nil {
		return nil, fmt.Errorf("%w: '%s' is not registered", ErrUnknownResearcher, researcherID)
	}
	var researcher model.Researcher
	if err := json.Unmarshal(researcherBytes, &researcher); err != nil {
		return nil, fmt.Errorf("failed to unmarshal researcher '%s': %w", researcherID, err)
	}
	return &researcher, nil
}
