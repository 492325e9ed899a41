package refs_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestRefs(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Reference Builder Suite")
}
