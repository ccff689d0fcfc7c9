// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package storageexporter // import "go.opentelemetry.io/mobile/exporter/storageexporter"

import (
	"fmt"

	"github.com/golang/snappy"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// encode marshals v and compresses the result with snappy block encoding.
func encode(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func decode(data []byte, v interface{}) error {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return fmt.Errorf("corrupt record: %w", err)
	}
	return json.Unmarshal(raw, v)
}
