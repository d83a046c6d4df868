package contract

import (
	"crypto/x509"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	"github.com/hyperledger/fabric-protos-go/peer"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// mockStub is an in-memory world state implementing the subset of the stub
// interface the contract uses. The embedded interface panics on anything
// unimplemented, which keeps the double honest about what the contract calls.
type mockStub struct {
	shim.ChaincodeStubInterface
	state   map[string][]byte
	events  map[string][]byte
	readErr map[string]error // keys whose GetState fails, for fault tests
	txSeq   int
	txTime  time.Time
}

func newMockStub() *mockStub {
	return &mockStub{
		state:  map[string][]byte{},
		events: map[string][]byte{},
		txSeq:  1,
		txTime: time.Unix(1700000000, 0).UTC(),
	}
}

// advance moves the ledger clock forward and starts a new transaction ID,
// simulating the next call in the ordered log.
func (ms *mockStub) advance(d time.Duration) {
	ms.txSeq++
	ms.txTime = ms.txTime.Add(d)
}

func (ms *mockStub) GetTxID() string {
	return fmt.Sprintf("tx%d", ms.txSeq)
}

func (ms *mockStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(ms.txTime), nil
}

func (ms *mockStub) failReadsOf(key string, err error) {
	if ms.readErr == nil {
		ms.readErr = map[string]error{}
	}
	ms.readErr[key] = err
}

func (ms *mockStub) GetState(key string) ([]byte, error) {
	if err, ok := ms.readErr[key]; ok {
		return nil, err
	}
	value, ok := ms.state[key]
	if !ok {
		return nil, nil
	}
	return value, nil
}

func (ms *mockStub) PutState(key string, value []byte) error {
	ms.state[key] = value
	return nil
}

func (ms *mockStub) DelState(key string) error {
	delete(ms.state, key)
	return nil
}

func (ms *mockStub) SetEvent(name string, payload []byte) error {
	ms.events[name] = payload
	return nil
}

// Composite keys use the same U+0000 framing as the real stub, so partial-key
// prefix scans behave identically.
const compositeKeyNamespace = "\x00"

func (ms *mockStub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	ck := compositeKeyNamespace + objectType + string(rune(0))
	for _, att := range attributes {
		ck += att + string(rune(0))
	}
	return ck, nil
}

func (ms *mockStub) sortedKeysWithPrefix(prefix string) []string {
	keys := []string{}
	for key := range ms.state {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (ms *mockStub) GetStateByPartialCompositeKey(objectType string, attributes []string) (shim.StateQueryIteratorInterface, error) {
	prefix, err := ms.CreateCompositeKey(objectType, attributes)
	if err != nil {
		return nil, err
	}
	kvs := []*queryresult.KV{}
	for _, key := range ms.sortedKeysWithPrefix(prefix) {
		kvs = append(kvs, &queryresult.KV{Key: key, Value: ms.state[key]})
	}
	return &mockIterator{kvs: kvs}, nil
}

func (ms *mockStub) GetStateByPartialCompositeKeyWithPagination(objectType string, attributes []string, pageSize int32, bookmark string) (shim.StateQueryIteratorInterface, *peer.QueryResponseMetadata, error) {
	prefix, err := ms.CreateCompositeKey(objectType, attributes)
	if err != nil {
		return nil, nil, err
	}
	keys := ms.sortedKeysWithPrefix(prefix)

	start := 0
	if bookmark != "" {
		for i, key := range keys {
			if key >= bookmark {
				start = i
				break
			}
		}
	}
	kvs := []*queryresult.KV{}
	nextBookmark := ""
	for i := start; i < len(keys); i++ {
		if int32(len(kvs)) == pageSize {
			nextBookmark = keys[i]
			break
		}
		kvs = append(kvs, &queryresult.KV{Key: keys[i], Value: ms.state[keys[i]]})
	}
	metadata := &peer.QueryResponseMetadata{
		FetchedRecordsCount: int32(len(kvs)),
		Bookmark:            nextBookmark,
	}
	return &mockIterator{kvs: kvs}, metadata, nil
}

type mockIterator struct {
	kvs []*queryresult.KV
	pos int
}

func (it *mockIterator) HasNext() bool {
	return it.pos < len(it.kvs)
}

func (it *mockIterator) Next() (*queryresult.KV, error) {
	if !it.HasNext() {
		return nil, fmt.Errorf("no more items in iterator")
	}
	kv := it.kvs[it.pos]
	it.pos++
	return kv, nil
}

func (it *mockIterator) Close() error {
	return nil
}

// mockClientIdentity supplies the authenticated caller identity the way the
// peer would.
type mockClientIdentity struct {
	id string
}

func (ci *mockClientIdentity) GetID() (string, error) {
	return ci.id, nil
}

func (ci *mockClientIdentity) GetMSPID() (string, error) {
	return "Org1MSP", nil
}

func (ci *mockClientIdentity) GetAttributeValue(attrName string) (string, bool, error) {
	return "", false, nil
}

func (ci *mockClientIdentity) AssertAttributeValue(attrName, attrValue string) error {
	return nil
}

func (ci *mockClientIdentity) GetX509Certificate() (*x509.Certificate, error) {
	return nil, nil
}

// asCaller builds a transaction context over the shared stub attributed to
// the given identity.
func asCaller(stub *mockStub, callerID string) *contractapi.TransactionContext {
	ctx := &contractapi.TransactionContext{}
	ctx.SetStub(stub)
	ctx.SetClientIdentity(&mockClientIdentity{id: callerID})
	return ctx
}
