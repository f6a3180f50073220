package observation

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/tphakala/floranet-go/internal/testutil"
)

func TestMain(m *testing.M) {
	testutil.RunFakeClassifierIfRequested()
	goleak.VerifyTestMain(m,
		// go-cache janitor goroutines of resolvers built in tests
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}
