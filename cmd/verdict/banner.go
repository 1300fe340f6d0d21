package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerFrameStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	bannerMarkStyle    = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	bannerTitleStyle   = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	bannerTaglineStyle = lipgloss.NewStyle().Foreground(colorPrimaryDark).Italic(true)
	bannerVersionStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

// renderBanner draws a balance scale around the title.
func renderBanner() string {
	bar := bannerFrameStyle.Render("─────┬─────")
	pan := bannerMarkStyle.Render("◡")
	post := bannerFrameStyle.Render("│")
	title := bannerTitleStyle.Render("VERDICT")

	lines := []string{
		"    " + pan + "  " + bar + "  " + pan,
		"          " + post,
		"       " + title,
	}
	return strings.Join(lines, "\n")
}

func renderBannerWithTagline() string {
	tagline := bannerTaglineStyle.Render("    weigh every reply")
	ver := bannerVersionStyle.Render("       " + version)
	return strings.Join([]string{renderBanner(), tagline, ver}, "\n")
}
