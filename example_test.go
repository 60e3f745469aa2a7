package mailroute_test

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/bjaus/mailroute"
)

// FolderFields are the capture groups of the folder route.
type FolderFields struct {
	User   string `json:"user"`
	Folder string `json:"folder"`
}

func Example() {
	r, err := mailroute.New(mailroute.Routes{
		{
			Name:    "folders",
			Pattern: `(?P<user>[^-]*)-(?P<folder>.*)@.*`,
			Handler: mailroute.HandlerFunc(func(ctx context.Context, m *mailroute.Match) error {
				fmt.Printf("file for %s into %s\n", m.Fields.Get("user"), m.Fields.Get("folder"))
				return nil
			}),
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	msg := "To: Benjamin <bencoe-awesome-folder@example.com>\nFrom: bencoe@example.com\n\nhi"
	if err := r.Dispatch(context.Background(), []byte(msg)); err != nil {
		log.Fatal(err)
	}

	// Output:
	// file for bencoe into awesome-folder
}

func Example_bind() {
	r, err := mailroute.New(mailroute.Routes{
		{
			Pattern: `(?P<user>[^-]*)-(?P<folder>.*)@.*`,
			Handler: mailroute.BindFunc(func(ctx context.Context, f FolderFields, m *mailroute.Match) error {
				fmt.Printf("%+v\n", f)
				return nil
			}),
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	_ = r.Dispatch(context.Background(), []byte("To: ann-receipts@example.com"))

	// Output:
	// {User:ann Folder:receipts}
}

func Example_outcomes() {
	signed := mailroute.SharedSecret("X-Relay-Token", "s3cret")

	r, err := mailroute.New(mailroute.Routes{
		{Name: "billing", Pattern: `billing@example\.com$`, Handler: mailroute.HandlerFunc(func(ctx context.Context, m *mailroute.Match) error {
			fmt.Println("billing handled")
			return nil
		}), Authenticator: signed},
	})
	if err != nil {
		log.Fatal(err)
	}

	for _, msg := range []string{
		"To: billing@example.com\nX-Relay-Token: s3cret\n\n",
		"To: billing@example.com\n\n",
		"To: sales@example.com\n\n",
	} {
		err := r.Dispatch(context.Background(), []byte(msg))
		switch {
		case err == nil:
		case errors.Is(err, mailroute.ErrAuthFailed):
			fmt.Println("rejected: authentication")
		case errors.Is(err, mailroute.ErrNoRoute):
			fmt.Println("rejected: no route")
		}
	}

	// Output:
	// billing handled
	// rejected: authentication
	// rejected: no route
}

func Example_envelope() {
	r, err := mailroute.New(mailroute.Routes{
		{Pattern: `support@`, Handler: mailroute.HandlerFunc(func(ctx context.Context, m *mailroute.Match) error {
			fmt.Println("support:", m.Recipient)
			return nil
		})},
	}, mailroute.WithEnvelope(
		mailroute.JSONEnvelope("webhook", mailroute.HasFields("body-mime"), "body-mime"),
	))
	if err != nil {
		log.Fatal(err)
	}

	body := `{"recipient": "support@example.com", "body-mime": "To: Support <support@example.com>\r\n\r\nhi"}`
	if err := r.Process(context.Background(), []byte(body)); err != nil {
		log.Fatal(err)
	}

	// Output:
	// support: support@example.com
}
