package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSSHBaseArgsIncludesIdentityAndPort(t *testing.T) {
	args := sshBaseArgs("/tmp/id_private", 22007)
	assert.Contains(t, args, "/tmp/id_private")
	assert.Contains(t, args, "22007")
	assert.Contains(t, args, "StrictHostKeyChecking=no")
}

func TestSCPArgsUsesCapitalPFlag(t *testing.T) {
	args := scpArgs("/tmp/id_private", 22007, "local.txt", "remote.txt")
	assertContainsPair(t, args, "-P", "22007")

	// scp has no lowercase -p port flag; ssh's -p must have been dropped.
	for i, a := range args {
		if a == "-p" {
			t.Fatalf("unexpected ssh-style -p flag at index %d in %v", i, args)
		}
	}
	assert.Equal(t, "local.txt", args[len(args)-2])
	assert.Equal(t, "remote.txt", args[len(args)-1])
}
