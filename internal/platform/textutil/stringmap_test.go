package textutil

import (
	"reflect"
	"testing"
)

func TestNormalizeStringMap(t *testing.T) {
	t.Run("trims and lower-cases keys", func(t *testing.T) {
		input := map[string]string{
			" Campaign ": " spring-sale ",
			"REFERRER":   "app.checkout",
			"warehouse":  " ",
			" ":          "ignored",
			"":           "ignored",
		}

		expected := map[string]string{
			"campaign":  "spring-sale",
			"referrer":  "app.checkout",
			"warehouse": "",
		}

		if actual := NormalizeStringMap(input); !reflect.DeepEqual(actual, expected) {
			t.Fatalf("expected %#v got %#v", expected, actual)
		}
	})

	t.Run("returns nil when nothing survives", func(t *testing.T) {
		if NormalizeStringMap(nil) != nil {
			t.Fatal("expected nil for nil input")
		}
		if NormalizeStringMap(map[string]string{}) != nil {
			t.Fatal("expected nil for empty map")
		}
		if NormalizeStringMap(map[string]string{" ": "x"}) != nil {
			t.Fatal("expected nil when every key is blank")
		}
	})
}
