// Package views holds the HTML templates of the admin console.
package views

import (
	"embed"
	"io/fs"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/template/html/v2"
)

//go:embed templates
var templates embed.FS

// Engine returns the template engine for the console pages.
func Engine() *html.Engine {
	sub, err := fs.Sub(templates, "templates")
	if err != nil {
		panic(err)
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	engine.AddFunc("roleClass", RoleClass)
	engine.AddFunc("avatarURL", AvatarURL)
	engine.AddFunc("inc", func(i int) int { return i + 1 })
	return engine
}

// RoleClass returns the badge style of a role.
func RoleClass(role string) string {
	switch role {
	case "Admin":
		return "badge badge-admin"
	case "User":
		return "badge badge-user"
	case "Moderator":
		return "badge badge-moderator"
	default:
		return "badge"
	}
}

// AvatarURL returns avatar when set, otherwise a generated placeholder for name.
func AvatarURL(avatar, name string) string {
	if strings.TrimSpace(avatar) != "" {
		return avatar
	}
	if name == "" {
		name = "User"
	}
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=random"
}
