package participant

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type UserClient struct{ c client }

func NewUserClient(opts Options) (*UserClient, error) {
	c, err := newClient("user-service", opts)
	if err != nil {
		return nil, err
	}
	return &UserClient{c: c}, nil
}

func (u *UserClient) FetchUser(ctx context.Context, id int64) (User, error) {
	var out *User
	if err := u.c.do(ctx, http.MethodGet, "/api/users/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return User{}, err
	}
	if out == nil {
		return User{}, fmt.Errorf("user-service: %w: id=%d", ErrNotFound, id)
	}
	return *out, nil
}
