package seed

import "fmt"

// renderMetaData produces the meta-data file content: instance
// identifier and local hostname, one key per line.
func renderMetaData(instanceID, hostname string) []byte {
	return []byte(fmt.Sprintf("instance-id: %s\nlocal-hostname: %s\n", instanceID, hostname))
}
