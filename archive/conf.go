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
	"context"
	"fmt"
)

const (
	DriverFS = "fs"
	DriverS3 = "s3"
)

type Conf struct {
	Driver string `json:"driver"`
	Dir    string `json:"dir"`
	S3     S3Conf `json:"s3"`
}

func (conf Conf) Validate() error {
	switch conf.Driver {
	case DriverFS:
		if conf.Dir == "" {
			return fmt.Errorf("missing archive.dir for the fs driver")
		}
	case DriverS3:
		if conf.S3.Bucket == "" {
			return fmt.Errorf("missing archive.s3.bucket for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown archive driver %s", conf.Driver)
	}
	return nil
}

func Open(ctx context.Context, conf Conf) (Store, error) {
	switch conf.Driver {
	case DriverFS:
		return NewFSStore(conf.Dir)
	case DriverS3:
		return NewS3Store(ctx, conf.S3)
	}
	return nil, fmt.Errorf("unknown archive driver %s", conf.Driver)
}
