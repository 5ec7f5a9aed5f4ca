// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/invowk/ingest/cmd/ingest"

func main() {
	cmd.Execute()
}
