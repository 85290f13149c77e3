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

package mcpserver

import (
	mcperrors "github.com/tombee/mcpcore/pkg/errors"
)

func errUnknownResource(uri string) error {
	return mcperrors.New(mcperrors.KindNotFound, "unknown resource").WithField(uri)
}

func errUnknownTool(name string) error {
	return mcperrors.New(mcperrors.KindNotFound, "unknown tool").WithField(name)
}

func errUnknownPrompt(name string) error {
	return mcperrors.New(mcperrors.KindNotFound, "unknown prompt").WithField(name)
}
