// Package testing provides a testing SDK for validating HTTP responses
// against an OpenAPI spec in Go tests.
//
// # Basic Usage
//
//	func TestListPets(t *testing.T) {
//	    v := respvalidatortest.New(t, "api.yaml")
//
//	    req, _ := http.NewRequest("GET", api.URL+"/v1/pets", nil)
//	    resp, err := http.DefaultClient.Do(req)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer resp.Body.Close()
//
//	    v.AssertValid(t, req, resp)
//	}
//
// New starts an in-process validation service and stops it when the test
// completes. Failed assertions are reported with t.Errorf and list every
// violation.
package testing
