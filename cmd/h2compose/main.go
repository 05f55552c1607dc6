// h2compose converts rendered Kubernetes manifests into a Docker Compose project.
package main

import (
	"os"

	"github.com/h2compose/h2compose/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
