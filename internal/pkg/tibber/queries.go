package tibber

const userInfoQuery = `
{
    viewer {
        userId
        name
        login
        homes {
            id
            type
            appNickname
            address {
                address1
                postalCode
                city
                country
            }
        }
    }
}
`

const priceInfoQuery = `
{viewer{homes{id,currentSubscription{priceInfo{
    range(resolution:HOURLY,last:48){edges{node{
        startsAt total energy tax level
    }}}
    today{startsAt total energy tax level}
    tomorrow{startsAt total energy tax level}
}}}}}
`

const dailyPriceRatingQuery = `
{viewer{homes{id,currentSubscription{priceRating{
    thresholdPercentages{low high}
    daily{
        currency
        entries{time total energy tax difference level}
    }
}}}}}
`

const hourlyPriceRatingQuery = `
{viewer{homes{id,currentSubscription{priceRating{
    thresholdPercentages{low high}
    hourly{
        currency
        entries{time total energy tax difference level}
    }
}}}}}
`

const monthlyPriceRatingQuery = `
{viewer{homes{id,currentSubscription{priceRating{
    thresholdPercentages{low high}
    monthly{
        currency
        entries{time total energy tax difference level}
    }
}}}}}
`
