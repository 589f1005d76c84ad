package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// -----------------------------------------------------------------------------
// Mock S3 Client for Testing
// -----------------------------------------------------------------------------

// mockObject is one stored object and its version tag.
type mockObject struct {
	data []byte
	etag string
}

// MockS3Client is a test double for API.
type MockS3Client struct {
	mu      sync.RWMutex
	objects map[string]mockObject
	version int

	// Call counters for test assertions
	GetObjectCalls  int
	HeadObjectCalls int

	// GetObjectFailOnCall causes GetObject to fail on the Nth call and after.
	// Set to 0 to disable (default).
	GetObjectFailOnCall int

	// MaxBodyBytes truncates GetObject bodies to simulate short responses.
	// Set to 0 to disable (default).
	MaxBodyBytes int

	// Denied lists keys for which HeadObject and GetObject return AccessDenied.
	Denied map[string]bool
}

// NewMockS3Client creates a new mock S3 client for testing.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		objects: make(map[string]mockObject),
		Denied:  make(map[string]bool),
	}
}

// PutData stores data under key with a fresh ETag.
func (m *MockS3Client) PutData(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version++
	m.objects[key] = mockObject{
		data: append([]byte(nil), data...),
		etag: fmt.Sprintf("\"v%d\"", m.version),
	}
}

// ResetCounts resets call counters for test isolation.
func (m *MockS3Client) ResetCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetObjectCalls = 0
	m.HeadObjectCalls = 0
}

// GetObject implements API.GetObject for testing.
func (m *MockS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	m.GetObjectCalls++
	calls := m.GetObjectCalls
	failOn := m.GetObjectFailOnCall
	maxBody := m.MaxBodyBytes
	obj, exists := m.objects[key]
	denied := m.Denied[key]
	m.mu.Unlock()

	if failOn > 0 && calls >= failOn {
		return nil, &smithyAPIError{code: "InternalError", message: "simulated get failure"}
	}
	if denied {
		return nil, &smithyAPIError{code: "AccessDenied", message: "access denied"}
	}
	if !exists {
		return nil, &types.NoSuchKey{}
	}
	if ifMatch := aws.ToString(params.IfMatch); ifMatch != "" && ifMatch != obj.etag {
		return nil, &smithyAPIError{code: "PreconditionFailed", message: "etag mismatch"}
	}

	data := obj.data

	// Handle range requests
	if params.Range != nil {
		rangeStr := aws.ToString(params.Range)
		var start, end int64
		_, _ = fmt.Sscanf(rangeStr, "bytes=%d-%d", &start, &end)

		if start >= int64(len(data)) {
			return nil, &smithyAPIError{code: "InvalidRange"}
		}

		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}

		data = data[start : end+1]
	}

	if maxBody > 0 && len(data) > maxBody {
		data = data[:maxBody]
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		ETag:          aws.String(obj.etag),
	}, nil
}

// HeadObject implements API.HeadObject for testing.
func (m *MockS3Client) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	m.HeadObjectCalls++
	obj, exists := m.objects[key]
	denied := m.Denied[key]
	m.mu.Unlock()

	if denied {
		return nil, &smithyAPIError{code: "AccessDenied", message: "access denied"}
	}
	if !exists {
		return nil, &types.NotFound{}
	}

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ETag:          aws.String(obj.etag),
	}, nil
}

// smithyAPIError implements smithy.APIError for testing.
type smithyAPIError struct {
	code    string
	message string
}

func (e *smithyAPIError) Error() string {
	return e.message
}

func (e *smithyAPIError) ErrorCode() string {
	return e.code
}

func (e *smithyAPIError) ErrorMessage() string {
	return e.message
}

func (e *smithyAPIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultUnknown
}

// Ensure MockS3Client implements API
var _ API = (*MockS3Client)(nil)
