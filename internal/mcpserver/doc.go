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

// Package mcpserver is the protocol handler core: it dispatches each
// JSON-RPC method to the registry or subsystem that
// owns it (tool/prompt/resource registries, the task router, the workflow
// engine), running every request and response through the pkg/middleware
// chains, and tracks per-request cancellation tokens for the "cancelled"
// notification.
//
// Server owns no transport; pkg/transport/streamhttp and any other
// transport call Dispatch/DispatchNotification with a decoded
// jsonrpc.Request/Notification and get back a jsonrpc.Response to encode.
package mcpserver
