// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dynamokv provides a tasks.Backend implementation on top of Amazon
// DynamoDB using a single-table design.
//
// Records live under composite primary keys: PK = "OWNER#<owner>",
// SK = "TASK#<taskID>". The version attribute carries the CAS version and
// is enforced with a ConditionExpression on PutItem. The optional
// expires_at attribute is populated as epoch seconds so DynamoDB's native
// TTL sweep can reclaim expired items without an application-level
// CleanupExpired pass.
//
// This backend holds no domain logic: state machine validation, owner
// checks, variable merges and TTL policy all live in tasks.Store. The
// backend only ever interprets one field of the opaque payload it stores
// — expiresAt — to populate the TTL attribute.
package dynamokv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	mcperrors "github.com/tombee/mcpcore/pkg/errors"
	"github.com/tombee/mcpcore/pkg/tasks"
)

const defaultTableName = "mcpcore_tasks"

// Compile-time interface assertion.
var _ tasks.Backend = (*Backend)(nil)

// Client is the subset of *dynamodb.Client this backend calls, so callers
// can substitute a fake in tests without a live DynamoDB endpoint.
type Client interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Backend is a DynamoDB-backed tasks.Backend.
type Backend struct {
	client Client
	table  string
}

// New wraps a pre-built DynamoDB client.
func New(client Client, table string) *Backend {
	if table == "" {
		table = defaultTableName
	}
	return &Backend{client: client, table: table}
}

// FromEnv builds a backend from the standard AWS SDK config chain
// (environment variables, shared profile, or IMDS), using table as the
// DynamoDB table name, or defaultTableName if empty. When
// MCPCORE_AWS_ROLE_ARN is set, the resolved credentials are exchanged for
// temporary STS-assumed-role credentials scoped to that role (optionally
// narrowed further with MCPCORE_AWS_EXTERNAL_ID) instead of using the
// chain's own credentials directly — the usual shape for a server whose
// instance/task role is only allowed to assume a separate, table-scoped
// role rather than touch DynamoDB itself.
func FromEnv(ctx context.Context, table string) (*Backend, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, mcperrors.Newf(mcperrors.KindInternal, "load aws config").WithCause(err)
	}

	if roleARN := os.Getenv("MCPCORE_AWS_ROLE_ARN"); roleARN != "" {
		stsClient := sts.NewFromConfig(cfg)
		provider := stscreds.NewAssumeRoleProvider(stsClient, roleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = "mcpcoreserver"
			if externalID := os.Getenv("MCPCORE_AWS_EXTERNAL_ID"); externalID != "" {
				o.ExternalID = &externalID
			}
		})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	return New(dynamodb.NewFromConfig(cfg), table), nil
}

func makePK(owner string) string { return "OWNER#" + owner }
func makeSK(taskID string) string { return "TASK#" + taskID }

func parsePK(pk string) (string, bool) { return strings.CutPrefix(pk, "OWNER#") }
func parseSK(sk string) (string, bool) { return strings.CutPrefix(sk, "TASK#") }

func splitKey(key string) (pk, sk string, err error) {
	owner, taskID, ok := strings.Cut(key, ":")
	if !ok {
		return "", "", mcperrors.Newf(mcperrors.KindInternal, "invalid key format (missing ':'): %s", key)
	}
	return makePK(owner), makeSK(taskID), nil
}

func splitPrefix(prefix string) (string, error) {
	owner, ok := strings.CutSuffix(prefix, ":")
	if !ok {
		return "", mcperrors.Newf(mcperrors.KindInternal, "invalid prefix format (missing trailing ':'): %s", prefix)
	}
	return makePK(owner), nil
}

// extractTTLEpoch pulls the expiresAt field out of a serialized TaskRecord
// and converts it to Unix epoch seconds for DynamoDB's TTL attribute.
func extractTTLEpoch(data []byte) (int64, bool) {
	var probe struct {
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.ExpiresAt == nil {
		return 0, false
	}
	return probe.ExpiresAt.Unix(), true
}

func mapSDKError(err error, key string) error {
	return mcperrors.Newf(mcperrors.KindInternal, "dynamodb error for key %s", key).WithCause(err)
}

// Get implements tasks.Backend.
func (b *Backend) Get(ctx context.Context, key string) (tasks.VersionedRecord, error) {
	pk, sk, err := splitKey(key)
	if err != nil {
		return tasks.VersionedRecord{}, err
	}

	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return tasks.VersionedRecord{}, mapSDKError(err, key)
	}
	if out.Item == nil {
		return tasks.VersionedRecord{}, mcperrors.Newf(mcperrors.KindNotFound, "key %s not found", key)
	}

	versionAttr, ok := out.Item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return tasks.VersionedRecord{}, mcperrors.Newf(mcperrors.KindInternal, "missing or invalid version attribute for key %s", key)
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return tasks.VersionedRecord{}, mcperrors.Newf(mcperrors.KindInternal, "invalid version attribute for key %s", key).WithCause(err)
	}

	dataAttr, ok := out.Item["data"].(*types.AttributeValueMemberS)
	if !ok {
		return tasks.VersionedRecord{}, mcperrors.Newf(mcperrors.KindInternal, "missing or invalid data attribute for key %s", key)
	}

	return tasks.VersionedRecord{Data: []byte(dataAttr.Value), Version: version}, nil
}

func (b *Backend) itemFor(pk, sk string, newVersion uint64, data []byte) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":      &types.AttributeValueMemberS{Value: pk},
		"SK":      &types.AttributeValueMemberS{Value: sk},
		"version": &types.AttributeValueMemberN{Value: strconv.FormatUint(newVersion, 10)},
		"data":    &types.AttributeValueMemberS{Value: string(data)},
	}
	if epoch, ok := extractTTLEpoch(data); ok {
		item["expires_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(epoch, 10)}
	}
	return item
}

// Put implements tasks.Backend.
func (b *Backend) Put(ctx context.Context, key string, data []byte) (uint64, error) {
	pk, sk, err := splitKey(key)
	if err != nil {
		return 0, err
	}

	current, err := b.Get(ctx, key)
	switch {
	case err == nil:
		// fall through with current.Version
	case mcperrors.KindOf(err) == mcperrors.KindNotFound:
		current.Version = 0
	default:
		return 0, err
	}
	newVersion := current.Version + 1

	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.table),
		Item:      b.itemFor(pk, sk, newVersion, data),
	})
	if err != nil {
		return 0, mapSDKError(err, key)
	}
	return newVersion, nil
}

// PutIfVersion implements tasks.Backend.
func (b *Backend) PutIfVersion(ctx context.Context, key string, data []byte, expected uint64) (uint64, error) {
	pk, sk, err := splitKey(key)
	if err != nil {
		return 0, err
	}
	newVersion := expected + 1

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(b.table),
		Item:                b.itemFor(pk, sk, newVersion, data),
		ConditionExpression: aws.String("#v = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#v": "version",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatUint(expected, 10)},
		},
	}
	if expected == 0 {
		// A brand-new key has no "version" attribute at all; require its
		// absence instead of version == 0 so creation races are caught too.
		input.ConditionExpression = aws.String("attribute_not_exists(PK)")
		input.ExpressionAttributeNames = nil
		input.ExpressionAttributeValues = nil
	}

	_, err = b.client.PutItem(ctx, input)
	if err != nil {
		if isConditionalCheckFailure(err) {
			return 0, mcperrors.Newf(mcperrors.KindConflict, "version conflict: expected %d", expected).WithField("version")
		}
		return 0, mapSDKError(err, key)
	}
	return newVersion, nil
}

func isConditionalCheckFailure(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ConditionalCheckFailedException"
	}
	return false
}

// Delete implements tasks.Backend.
func (b *Backend) Delete(ctx context.Context, key string) (bool, error) {
	pk, sk, err := splitKey(key)
	if err != nil {
		return false, err
	}

	out, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, mapSDKError(err, key)
	}
	return len(out.Attributes) > 0, nil
}

// ListByPrefix implements tasks.Backend.
func (b *Backend) ListByPrefix(ctx context.Context, prefix string) (map[string]tasks.VersionedRecord, error) {
	pk, err := splitPrefix(prefix)
	if err != nil {
		return nil, err
	}

	out := make(map[string]tasks.VersionedRecord)
	var startKey map[string]types.AttributeValue
	for {
		query := &dynamodb.QueryInput{
			TableName:                 aws.String(b.table),
			KeyConditionExpression:    aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: pk}},
			ExclusiveStartKey:         startKey,
		}
		page, err := b.client.Query(ctx, query)
		if err != nil {
			return nil, mapSDKError(err, prefix)
		}

		for _, item := range page.Items {
			pkAttr, ok1 := item["PK"].(*types.AttributeValueMemberS)
			skAttr, ok2 := item["SK"].(*types.AttributeValueMemberS)
			verAttr, ok3 := item["version"].(*types.AttributeValueMemberN)
			dataAttr, ok4 := item["data"].(*types.AttributeValueMemberS)
			if !ok1 || !ok2 || !ok3 || !ok4 {
				continue
			}
			owner, ok5 := parsePK(pkAttr.Value)
			taskID, ok6 := parseSK(skAttr.Value)
			if !ok5 || !ok6 {
				continue
			}
			version, err := strconv.ParseUint(verAttr.Value, 10, 64)
			if err != nil {
				continue
			}
			out[fmt.Sprintf("%s:%s", owner, taskID)] = tasks.VersionedRecord{
				Data:    []byte(dataAttr.Value),
				Version: version,
			}
		}

		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		startKey = page.LastEvaluatedKey
	}
	return out, nil
}

// CleanupExpired implements tasks.Backend as a no-op: DynamoDB's native TTL
// sweep reclaims expired items on its own schedule (within ~48 hours),
// without any application-level pass.
func (b *Backend) CleanupExpired(ctx context.Context) (int, error) {
	return 0, nil
}
