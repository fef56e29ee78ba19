package restyutil

import (
	"fmt"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// Output receives the rendered request/response pair of every exchange.
type Output interface {
	Write(id string, contents string)
}

// DumpMessages writes every completed exchange of the client to `output`, files
// are named "<n>_<method>", n counting from 1. A nil output is a no-op.
func DumpMessages(client *resty.Client, prefix string, output Output) {
	if output == nil {
		return
	}
	var idcounter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := atomic.AddUint64(&idcounter, 1)
		name := fmt.Sprintf("%s%d_%s", prefix, id, res.Request.Method)
		output.Write(name, formatHttpMessage(res))
		return nil
	})
}
