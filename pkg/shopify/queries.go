package shopify

const inventoryItemsQuery = `
query inventoryItems($after: String, $query: String, $first: Int) {
  inventoryItems(after: $after, first: $first, query: $query) {
    edges {
      node {
        id
        countryCodeOfOrigin
        createdAt
        duplicateSkuCount
        harmonizedSystemCode
        inventoryHistoryUrl
        legacyResourceId
        measurement {
          id
          weight {
            unit
            value
          }
        }
        provinceCodeOfOrigin
        requiresShipping
        sku
        tracked
        trackedEditable {
          locked
          reason
        }
        unitCost {
          amount
          currencyCode
        }
        updatedAt
        variant {
          id
          availableForSale
          barcode
          compareAtPrice
          createdAt
          inventoryPolicy
          inventoryQuantity
          legacyResourceId
          position
          price
          product {
            id
          }
          requiresComponents
          selectedOptions {
            name
            value
          }
          sellableOnlineQuantity
          sellingPlanGroupsCount {
            count
            precision
          }
          sku
          taxCode
          taxable
          title
          updatedAt
        }
      }
    }
    pageInfo {
      endCursor
      hasNextPage
    }
  }
}`

const discountsQuery = `
query discountNodes($after: String, $query: String, $first: Int) {
  discountNodes(after: $after, first: $first, query: $query, sortKey: UPDATED_AT) {
    nodes {
      id
      discount {
        __typename
        ... on DiscountCodeBasic {
          title
          status
          summary
          startsAt
          endsAt
          createdAt
          updatedAt
          asyncUsageCount
          codes(first: 50) {
            nodes {
              code
            }
          }
        }
        ... on DiscountCodeBxgy {
          title
          status
          summary
          startsAt
          endsAt
          createdAt
          updatedAt
          asyncUsageCount
        }
        ... on DiscountCodeFreeShipping {
          title
          status
          summary
          startsAt
          endsAt
          createdAt
          updatedAt
          asyncUsageCount
        }
        ... on DiscountAutomaticBasic {
          title
          status
          summary
          startsAt
          endsAt
          createdAt
          updatedAt
        }
        ... on DiscountAutomaticBxgy {
          title
          status
          summary
          startsAt
          endsAt
          createdAt
          updatedAt
        }
        ... on DiscountAutomaticFreeShipping {
          title
          status
          summary
          startsAt
          endsAt
          createdAt
          updatedAt
        }
      }
    }
    pageInfo {
      endCursor
      hasNextPage
    }
  }
}`

const taxonomyQuery = `
query taxonomy($after: String, $first: Int) {
  taxonomy {
    categories(after: $after, first: $first) {
      nodes {
        id
        name
        fullName
        level
        isLeaf
        isRoot
        isArchived
        parentId
        childrenIds
        ancestorIds
      }
      pageInfo {
        endCursor
        hasNextPage
      }
    }
  }
}`
