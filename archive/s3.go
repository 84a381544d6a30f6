// Copyright 2025 The IQC Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	fingerprintMetaKey = "fingerprint"
	defaultS3Region    = "us-east-1"
)

type S3Conf struct {
	Bucket string `json:"bucket"`
	Region string `json:"region"`

	// Prefix is prepended to all the object keys
	Prefix string `json:"prefix"`

	// Endpoint allows for S3 compatible services (e.g. MinIO)
	Endpoint  string `json:"endpoint"`
	PathStyle bool   `json:"pathStyle"`

	// AccessKeyID and SecretAccessKey are optional, the default
	// credentials chain is used if not set
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
}

// S3Store keeps files in an S3 bucket. Fingerprints are stored
// in object metadata so List (which does not see metadata) reports
// them as unknown.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

func isNotFound(err error) bool {
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

func (store *S3Store) key(name string) string {
	return store.prefix + name
}

func (store *S3Store) Put(ctx context.Context, name string, src io.Reader) (Entry, error) {
	if err := ValidateName(name); err != nil {
		return Entry{}, err
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to archive %s: %w", name, err)
	}
	fp := Fingerprint(data)
	_, err = store.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(store.bucket),
		Key:           aws.String(store.key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      map[string]string{fingerprintMetaKey: FormatFingerprint(fp)},
	})
	if err != nil {
		return Entry{}, fmt.Errorf("failed to archive %s: %w", name, err)
	}
	return Entry{Name: name, Size: int64(len(data)), Fingerprint: fp}, nil
}

func (store *S3Store) Get(ctx context.Context, name string) (io.ReadCloser, Entry, error) {
	if err := ValidateName(name); err != nil {
		return nil, Entry{}, err
	}
	out, err := store.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(store.key(name)),
	})
	if isNotFound(err) {
		return nil, Entry{}, fmt.Errorf("failed to get archived file %s: %w", name, ErrNotFound)

	} else if err != nil {
		return nil, Entry{}, fmt.Errorf("failed to get archived file %s: %w", name, err)
	}
	entry := Entry{
		Name:     name,
		Size:     aws.ToInt64(out.ContentLength),
		Modified: aws.ToTime(out.LastModified),
	}
	if v, ok := out.Metadata[fingerprintMetaKey]; ok {
		entry.Fingerprint, _ = ParseFingerprint(v)
	}
	return out.Body, entry, nil
}

func (store *S3Store) List(ctx context.Context) ([]Entry, error) {
	ans := make([]Entry, 0, 20)
	var token *string
	for {
		out, err := store.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(store.bucket),
			Prefix:            aws.String(store.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return []Entry{}, fmt.Errorf("failed to list archive: %w", err)
		}
		for _, obj := range out.Contents {
			ans = append(ans, Entry{
				Name:     strings.TrimPrefix(aws.ToString(obj.Key), store.prefix),
				Size:     aws.ToInt64(obj.Size),
				Modified: aws.ToTime(obj.LastModified),
			})
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	slices.SortFunc(ans, func(a, b Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return ans, nil
}

func (store *S3Store) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	_, err := store.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(store.key(name)),
	})
	if isNotFound(err) {
		return fmt.Errorf("failed to delete %s: %w", name, ErrNotFound)

	} else if err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	_, err = store.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(store.key(name)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

func NewS3Store(ctx context.Context, conf S3Conf, optFns ...func(*s3.Options)) (*S3Store, error) {
	if conf.Bucket == "" {
		return nil, fmt.Errorf("failed to create S3 archive: missing bucket")
	}
	region := conf.Region
	if region == "" {
		region = defaultS3Region
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if conf.AccessKeyID != "" {
		loadOpts = append(
			loadOpts,
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(conf.AccessKeyID, conf.SecretAccessKey, ""),
			),
		)
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 archive: %w", err)
	}
	opts := append([]func(*s3.Options){func(o *s3.Options) {
		o.UsePathStyle = conf.PathStyle
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
		}
	}}, optFns...)
	client := s3.NewFromConfig(awsCfg, opts...)
	return &S3Store{client: client, bucket: conf.Bucket, prefix: conf.Prefix}, nil
}
