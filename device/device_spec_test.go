package device_test

import (
  "errors"
  "reflect"
  "testing"

  "github.com/robertof/go-restclient-exporter/device"
)

func TestNewSpec(t *testing.T) {
  got := device.NewSpec("name=lab, host = 10.0.0.1,port=8080,invalid,,opts=a=b")
  want := device.Spec{
    "name": "lab",
    "host": "10.0.0.1",
    "port": "8080",
    "opts": "a=b",
  }

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("NewSpec: got %+#v, wanted %+#v", got, want)
  }

  if got.Name() != "lab" || got.Host() != "10.0.0.1" {
    t.Fatalf("Name()/Host(): got %q/%q", got.Name(), got.Host())
  }
}

func TestSpec_Int(t *testing.T) {
  spec := device.NewSpec("port=8080,bad=x")

  if port, err := spec.Port(80); err != nil || port != 8080 {
    t.Fatalf("Port(80): got %d, %v", port, err)
  }

  if v, err := spec.Int("missing", 5); err != nil || v != 5 {
    t.Fatalf("Int(missing, 5): got %d, %v", v, err)
  }

  if _, err := spec.Int("bad", 0); !errors.Is(err, device.ErrInvalidSpec) {
    t.Fatalf("Int(bad): got %v, wanted %v", err, device.ErrInvalidSpec)
  }
}

func TestSpec_Bool(t *testing.T) {
  spec := device.NewSpec("a=yes,b=TRUE,c=1,d=no")

  for key, want := range map[string]bool{"a": true, "b": true, "c": true, "d": false, "e": false} {
    if got := spec.Bool(key); got != want {
      t.Errorf("Bool(%q): got %v, wanted %v", key, got, want)
    }
  }
}
